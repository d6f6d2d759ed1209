package device

import (
	"fmt"
	"strings"
)

// Identity はプリンターを識別する値型
// 同一性は VendorID と ProductID のみで判定し、Name は表示用
type Identity struct {
	Name      string `json:"name"`
	VendorID  string `json:"vendorId"`
	ProductID string `json:"productId"`
}

// Key is the deduplication key for an Identity.
type Key struct {
	VendorID  string
	ProductID string
}

// Raw はドライバーが報告する生のデバイス情報
// 各フィールドは未設定の可能性がある
type Raw struct {
	Name      *string
	VendorID  *string
	ProductID *string
}

// New normalizes ids to lower-case hex without a 0x prefix.
func New(name, vendorID, productID string) Identity {
	return Identity{
		Name:      strings.TrimSpace(name),
		VendorID:  normalizeID(vendorID),
		ProductID: normalizeID(productID),
	}
}

// FromRaw builds an Identity, replacing missing fields with empty strings.
func FromRaw(r Raw) Identity {
	return New(deref(r.Name), deref(r.VendorID), deref(r.ProductID))
}

func (d Identity) Key() Key {
	return Key{VendorID: d.VendorID, ProductID: d.ProductID}
}

// Equal reports whether d and other refer to the same printer.
func (d Identity) Equal(other Identity) bool {
	return d.Key() == other.Key()
}

// IsZero reports whether neither id is known.
func (d Identity) IsZero() bool {
	return d.VendorID == "" && d.ProductID == ""
}

func (d Identity) String() string {
	if d.Name == "" {
		return fmt.Sprintf("%s:%s", d.VendorID, d.ProductID)
	}
	return fmt.Sprintf("%s (%s:%s)", d.Name, d.VendorID, d.ProductID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}
