package models

import "time"

// AuditEvent is one create or delete issued against the cluster on behalf of
// an operator.
type AuditEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Actor      string    `gorm:"size:128;index" json:"actor"`
	Operation  string    `gorm:"size:64;not null" json:"operation"`
	Resource   string    `gorm:"size:64;not null" json:"resource"`
	Name       string    `gorm:"size:512" json:"name"`
	Username   string    `gorm:"size:253;index" json:"username"`
	Namespace  string    `gorm:"size:63" json:"namespace,omitempty"`
	Permission string    `gorm:"size:253" json:"permission,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
