package models

import (
	"fmt"
	"strings"
)

// Side selects which instruction template and field schema is requested
type Side string

const (
	SideSingle Side = "single"
	SideFront  Side = "front"
	SideBack   Side = "back"
)

// ProcessingMode is "single" for one image or "double" for front and back
type ProcessingMode string

const (
	ModeSingle ProcessingMode = "single"
	ModeDouble ProcessingMode = "double"
)

// ParseMode accepts the processing_mode form value; empty means single
func ParseMode(s string) (ProcessingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ModeSingle, nil
	case "double":
		return ModeDouble, nil
	default:
		return "", fmt.Errorf("unknown processing_mode %q", s)
	}
}

// Field keys
const (
	FullName           = "full_name"
	FirstName          = "first_name"
	LastName           = "last_name"
	Email              = "email"
	Phone              = "handphone_number"
	CompanyName        = "company_name"
	Position           = "position"
	Address            = "address"
	City               = "city"
	Country            = "country"
	Website            = "website"
	SocialMedia        = "social_media"
	CompanyDescription = "company_description"
	Timestamp          = "timestamp"

	AdditionalEmail   = "additional_email"
	AdditionalPhone   = "additional_phone"
	AdditionalWebsite = "additional_website"
	Services          = "services"

	BackSideProcessed = "back_side_processed"
)

// CardKeys is the single-sided schema in output order
var CardKeys = []string{
	FullName, FirstName, LastName, Email, Phone, CompanyName, Position,
	Address, City, Country, Website, SocialMedia, CompanyDescription,
}

// FrontKeys is requested from the front of a two-sided card
var FrontKeys = []string{
	FullName, FirstName, LastName, Email, Phone, CompanyName, Position,
	Address, City, Country, Website,
}

// BackKeys is requested from the back of a two-sided card
var BackKeys = []string{
	SocialMedia, CompanyDescription, AdditionalEmail, AdditionalPhone,
	AdditionalWebsite, Address, Services,
}

// KeysFor returns the schema requested for a side
func KeysFor(side Side) []string {
	switch side {
	case SideFront:
		return FrontKeys
	case SideBack:
		return BackKeys
	default:
		return CardKeys
	}
}

// FieldMap holds extracted card fields. Values are string or nil; an
// absent or empty field is always stored as nil. back_side_processed is
// the only boolean.
type FieldMap map[string]any

// Get returns the string value of key, or "" when absent or nil
func (m FieldMap) Get(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Empty reports whether key has no usable value
func (m FieldMap) Empty(key string) bool {
	return strings.TrimSpace(m.Get(key)) == ""
}

// Set stores v under key; an empty string is stored as nil
func (m FieldMap) Set(key, v string) {
	if v == "" {
		m[key] = nil
		return
	}
	m[key] = v
}

// Clone returns a shallow copy
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// EmptyFieldMap returns a map with every key of the side's schema set to nil
func EmptyFieldMap(side Side) FieldMap {
	keys := KeysFor(side)
	m := make(FieldMap, len(keys))
	for _, k := range keys {
		m[k] = nil
	}
	return m
}

// ImageBuffer is an uploaded image ready to send to the extraction service
type ImageBuffer struct {
	Data      []byte
	MIMEType  string
	Reencoded bool
}

// DispatchResult reports the outcome of the webhook call
type DispatchResult struct {
	Delivered  bool   `json:"delivered"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}
