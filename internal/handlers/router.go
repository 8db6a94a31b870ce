package handlers

import (
	"net/http"

	"github.com/aegisshield/aegis/internal/handlers/middleware"
)

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authHandler *AuthHandler, authService AuthService, l logger) http.Handler {
	withAuth := middleware.Auth(authService)
	adminOnly := middleware.RequireRole("admin")

	apiauth := http.NewServeMux()

	apiauth.HandleFunc("POST /register", authHandler.register)
	apiauth.HandleFunc("POST /login", authHandler.login)
	apiauth.HandleFunc("POST /refresh", authHandler.refresh)
	apiauth.HandleFunc("POST /validate", authHandler.validate)
	apiauth.HandleFunc("POST /logout", authHandler.logout)

	apiauth.Handle("GET /me", withAuth(http.HandlerFunc(authHandler.me)))
	apiauth.Handle("POST /admin/reset-password",
		chain(http.HandlerFunc(authHandler.adminResetPassword), withAuth, adminOnly),
	)

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	return chain(root,
		middleware.Logger(l),
	)
}
