package main

import (
	"context"
	"log"
	"os"

	_ "github.com/parkkyonghun0510/lc-le-sub001/api/swagger" // swagger docs
	"github.com/parkkyonghun0510/lc-le-sub001/internal/database"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/handler"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/middleware"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/model"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/repository"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/service"
	"github.com/parkkyonghun0510/lc-le-sub001/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Loan Workflow Permission API
// @version         1.0
// @description     Permission and access control service for the loan application workflow: roles, direct overrides, templates and a full audit trail.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub for the audit live feed
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)

	auditService := service.NewAuditService(auditRepo, wsHub)
	permissionService := service.NewPermissionService(permissionRepo, auditService)
	roleService := service.NewRoleService(roleRepo, permissionRepo, templateRepo, txManager, auditService)
	assignmentService := service.NewAssignmentService(assignmentRepo, userRepo, roleRepo, permissionRepo, auditService)
	decisionService := service.NewDecisionService(assignmentRepo, roleRepo)
	templateService := service.NewTemplateService(templateRepo, permissionRepo, roleRepo, assignmentRepo, userRepo, txManager, auditService)
	userService := service.NewUserService(userRepo, roleRepo, assignmentRepo, departmentRepo, branchRepo, txManager, auditService)
	orgService := service.NewOrgService(departmentRepo, branchRepo)
	applicationService := service.NewApplicationService(applicationRepo, userRepo, txManager)

	// Seed the standard catalog, roles and templates before serving
	if os.Getenv("SEED_ON_START") == "true" {
		seedService := service.NewSeedService(permissionRepo, roleRepo, templateRepo, txManager)
		if _, err := seedService.Run(context.Background()); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
	}

	// Every guarded route asks the decision engine per request
	guard := middleware.NewGuard(decisionService)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, decisionService)
	permissionHandler := handler.NewPermissionHandler(permissionService)
	roleHandler := handler.NewRoleHandler(roleService)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, decisionService)
	templateHandler := handler.NewTemplateHandler(templateService)
	auditHandler := handler.NewAuditHandler(auditService)
	orgHandler := handler.NewOrgHandler(orgService)
	applicationHandler := handler.NewApplicationHandler(applicationService)
	accessHandler := handler.NewAccessHandler(decisionService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint: live audit feed, gated on AUDIT READ
	canFollowAudit := func(ctx context.Context, userID uuid.UUID) bool {
		allowed, err := decisionService.HasPermission(ctx, userID, service.PermissionCheck{
			Resource: model.ResourceAudit,
			Action:   model.ActionRead,
		})
		return err == nil && allowed
	}
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret(), canFollowAudit)
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""), guard)
	permissionHandler.RegisterRoutes(router.Group(""), guard)
	roleHandler.RegisterRoutes(router.Group(""), guard)
	assignmentHandler.RegisterRoutes(router.Group(""), guard)
	templateHandler.RegisterRoutes(router.Group(""), guard)
	auditHandler.RegisterRoutes(router.Group(""), guard)
	orgHandler.RegisterRoutes(router.Group(""), guard)
	applicationHandler.RegisterRoutes(router.Group(""), guard)
	accessHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
