package model

import "github.com/google/uuid"

// AuthUser - 검증된 access token의 주체
//
// TenantID가 nil이면 host 사용자이다.
type AuthUser struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID
}

// AccessClaims - access token의 사용자 정의 claim
type AccessClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
}
