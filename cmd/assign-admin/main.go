// 为现有用户分配超级管理员角色的工具
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pu-ac-cn/admin-auth/internal/config"
	"github.com/pu-ac-cn/admin-auth/internal/database"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("用法: assign-admin <用户名>")
		fmt.Println("示例: assign-admin admin")
		os.Exit(1)
	}

	username := os.Args[1]

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	if err := database.Init(&cfg.Database, zap.NewNop()); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	db := database.GetDB()

	userRepo := repository.NewUserRepository(db)
	rbacService := service.NewRBACService(
		repository.NewRoleRepository(db),
		repository.NewPermissionRepository(db),
		repository.NewUserRoleRepository(db),
	)

	// 确保默认角色和权限已初始化
	if err := rbacService.InitDefaultRolesAndPermissions(ctx); err != nil {
		log.Printf("初始化默认角色和权限失败: %v", err)
	}

	user, err := userRepo.GetByUsername(ctx, username)
	if err != nil {
		log.Fatalf("用户不存在: %s", username)
	}

	// 分配超级管理员角色
	if err := rbacService.AssignRoleByCode(ctx, user.ID, model.RoleSuperAdmin); err != nil {
		log.Fatalf("分配角色失败: %v", err)
	}

	// 已登录的会话仍持有旧的权限快照，需重新登录生效
	fmt.Printf("成功为用户 %s 分配超级管理员角色，重新登录后生效\n", user.Username)
}
