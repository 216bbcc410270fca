package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/container-inventory/internal/core/domain"
)

// AddRequest creates a production batch of items sharing one SKU.
type AddRequest struct {
	WarehouseID    string    `validate:"required"`
	CompanyID      string    `validate:"required"`
	SKUCode        string    `validate:"required"`
	SKUCategory    string    `validate:"required"`
	SKUType        string    `validate:"required"`
	ProductionTime time.Time // defaults to now
	ItemIDs        []string  `validate:"required,min=1,unique,dive,required"`
}

// InboundRequest places produced items into a container.
type InboundRequest struct {
	WarehouseID string `validate:"required"`
	CompanyID   string // when set, items must belong to this company
	ContainerID string `validate:"required"`
	InboundID   string `validate:"required"`
	SKUCode     string `validate:"required"`
	// MaxCapacity is the container's ceiling for SKUCode.
	MaxCapacity int      `validate:"gt=0"`
	ItemIDs     []string `validate:"required,min=1,unique,dive,required"`
}

// OutboundRequest ships items out of a container against an order.
type OutboundRequest struct {
	WarehouseID string `validate:"required"`
	CompanyID   string
	ContainerID string   `validate:"required"`
	OutboundID  string   `validate:"required"`
	OrderID     string   `validate:"required"`
	SKUCode     string   `validate:"required"`
	MaxCapacity int      `validate:"gt=0"`
	ItemIDs     []string `validate:"required,min=1,unique,dive,required"`
}

// MoveRequest relocates items between two containers of the same warehouse.
type MoveRequest struct {
	WarehouseID            string   `validate:"required"`
	SourceContainerID      string   `validate:"required"`
	DestinationContainerID string   `validate:"required,nefield=SourceContainerID"`
	SKUCode                string   `validate:"required"`
	SourceMaxCapacity      int      `validate:"gt=0"`
	DestinationMaxCapacity int      `validate:"gt=0"`
	ItemIDs                []string `validate:"required,min=1,unique,dive,required"`
}

// validateRequest turns validator failures into a NonRetriable error naming the bad fields.
func validateRequest(v *validator.Validate, op string, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.NewError(domain.KindNonRetriable, op, "invalid request", err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	}
	return domain.NewError(domain.KindNonRetriable, op, strings.Join(msgs, "; "), nil)
}
