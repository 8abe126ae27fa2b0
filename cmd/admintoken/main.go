// Command admintoken mints a bearer token for the admin endpoints, signed with JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"accesscontrol/config"
	"accesscontrol/internal/adapters/auth"
	"accesscontrol/internal/domain"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token subject")
	email := flag.String("email", "", "user email")
	roles := flag.String("roles", domain.RoleAdmin, "comma separated roles")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, strings.ToUpper(r))
		}
	}

	token, err := auth.NewJWTIssuer(cfg.JWTSecret).Issue(*userID, *email, roleList, *ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
