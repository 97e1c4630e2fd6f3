/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Claims identifies the local process a control token was issued to. There
// are no user accounts at this layer; the token only answers "is this
// caller a process the operator trusted enough to hand a token to".
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 control-API token for subject, valid for ttl.
func IssueToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(secret []byte, tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

const authMetadataKey = "authorization"

func tokenFromContext(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(authMetadataKey)
	if len(vals) == 0 {
		return "", false
	}
	return strings.TrimPrefix(vals[0], "Bearer "), true
}

// authUnaryInterceptor rejects any unary call lacking a token signed by
// secret. Used for Submit.
func authUnaryInterceptor(secret []byte) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		tok, ok := tokenFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing control-api token")
		}
		if _, err := parseToken(secret, tok); err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid control-api token: %v", err)
		}
		return handler(ctx, req)
	}
}

// authStreamInterceptor is the server-streaming counterpart, used for
// Events.
func authStreamInterceptor(secret []byte) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		tok, ok := tokenFromContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "missing control-api token")
		}
		if _, err := parseToken(secret, tok); err != nil {
			return status.Errorf(codes.Unauthenticated, "invalid control-api token: %v", err)
		}
		return handler(srv, ss)
	}
}

// AuthServerOptions returns the grpc.ServerOption pair enforcing JWT
// bearer-token auth for secret, so a caller building its own grpc.Server
// (to add further options like stats handlers) can still apply the same
// auth this package's NewServer applies internally. Returns nil when
// secret is empty.
func AuthServerOptions(secret []byte) []grpc.ServerOption {
	if len(secret) == 0 {
		return nil
	}
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(authUnaryInterceptor(secret)),
		grpc.StreamInterceptor(authStreamInterceptor(secret)),
	}
}
