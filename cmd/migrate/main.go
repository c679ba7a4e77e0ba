// Package main 数据库迁移工具
package main

import (
	"context"
	"flag"
	"log"

	"github.com/pu-ac-cn/admin-auth/internal/config"
	"github.com/pu-ac-cn/admin-auth/internal/database"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"go.uber.org/zap"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "", "配置文件路径")
	adminName := flag.String("admin", "", "创建超级管理员账号的用户名，为空则跳过")
	adminPassword := flag.String("admin-password", "", "超级管理员初始密码")
	flag.Parse()

	// 加载配置
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库连接
	if err := database.Init(&cfg.Database, zap.NewNop()); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()
	log.Println("数据库连接成功")

	log.Println("开始执行数据库迁移...")

	models := []any{
		&model.Dept{},
		&model.User{},
		&model.Role{},
		&model.Permission{},
		&model.UserRole{},
		&model.RolePermission{},
		&model.LoginLog{},
		&model.OperLog{},
	}
	for _, m := range models {
		if err := database.AutoMigrate(m); err != nil {
			log.Fatalf("迁移失败: %v", err)
		}
	}
	log.Println("数据库迁移完成！")

	ctx := context.Background()
	db := database.GetDB()

	// 默认角色与权限
	rbacService := service.NewRBACService(
		repository.NewRoleRepository(db),
		repository.NewPermissionRepository(db),
		repository.NewUserRoleRepository(db),
	)
	if err := rbacService.InitDefaultRolesAndPermissions(ctx); err != nil {
		log.Fatalf("初始化默认角色和权限失败: %v", err)
	}
	log.Println("默认角色和权限已就绪")

	// 根部门
	deptRepo := repository.NewDeptRepository(db)
	nodes, err := deptRepo.ListAll(ctx)
	if err != nil {
		log.Fatalf("查询部门失败: %v", err)
	}
	rootID := ""
	for _, n := range nodes {
		if n.ParentID == "" {
			rootID = n.ID
			break
		}
	}
	if rootID == "" {
		root := &model.Dept{Name: "总部", Status: model.StatusActive}
		if err := deptRepo.Create(ctx, root); err != nil {
			log.Fatalf("创建根部门失败: %v", err)
		}
		rootID = root.ID
		log.Println("已创建根部门")
	}

	if *adminName == "" {
		return
	}

	// 超级管理员账号
	userService := service.NewUserService(repository.NewUserRepository(db), rbacService, service.NewCredentialStore(0))
	admin, err := userService.GetByUsername(ctx, *adminName)
	if err != nil {
		admin = &model.User{Username: *adminName, Nickname: "超级管理员", DeptID: rootID}
		if err := userService.Create(ctx, admin, *adminPassword); err != nil {
			log.Fatalf("创建管理员失败: %v", err)
		}
		log.Printf("已创建管理员账号: %s", admin.Username)
	}
	if err := rbacService.AssignRoleByCode(ctx, admin.ID, model.RoleSuperAdmin); err != nil {
		log.Fatalf("分配角色失败: %v", err)
	}
	log.Printf("管理员 %s 已拥有超级管理员角色", admin.Username)
}
