package domain

import (
	"time"

	"github.com/google/uuid"
)

const TypePrinterProfile = "printer_profile"

const (
	PrinterReceipt = "receipt"
	PrinterKitchen = "kitchen"
	PrinterLabel   = "label"

	ConnectionUSB     = "usb"
	ConnectionNetwork = "network"
	ConnectionSerial  = "serial"
)

type PrinterProfile struct {
	ProfileID    uuid.UUID `json:"id"`
	Name         string    `json:"name" validate:"required,profile_name"`
	Kind         string    `json:"kind" validate:"required,oneof=receipt kitchen label"`
	Connection   string    `json:"connection" validate:"required,oneof=usb network serial"`
	Address      string    `json:"address,omitempty" validate:"required_unless=Connection usb,max=253"`
	Port         int       `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	PaperWidthMM int       `json:"paper_width_mm" validate:"oneof=58 80"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p PrinterProfile) ID() uuid.UUID       { return p.ProfileID }
func (PrinterProfile) TypeTag() string       { return TypePrinterProfile }
func (p PrinterProfile) Validate() error     { return validateStruct(p) }
func (PrinterProfile) CheckDeletable() error { return nil }
