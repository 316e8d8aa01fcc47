// Package models holds the gorm models of the billing tables. They stay
// apart from the domain types; ToDomain and FromDomain convert between them.
package models
