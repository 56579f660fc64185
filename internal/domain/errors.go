package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidParentID   = errors.New("invalid parent id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidProgress   = errors.New("invalid progress")
	ErrInvalidOrderIndex = errors.New("invalid order index")
	ErrInvalidCost       = errors.New("invalid cost")
	ErrStructuralUpdate  = errors.New("parent and order changes must go through reorder")
)
