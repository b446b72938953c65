// pkg/core/loot.go
package core

import "fmt"

// LootKind identifies the visual/asset family of a loot object
type LootKind uint8

const (
	KindCoin LootKind = iota
	KindDollarSign
	KindGiftCard
	KindCount // Sentinel for array sizing
)

var kindNames = [KindCount]string{
	KindCoin:       "coin",
	KindDollarSign: "dollar_sign",
	KindGiftCard:   "gift_card",
}

func (k LootKind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k names a known kind.
func (k LootKind) Valid() bool {
	return k < KindCount
}

// ParseLootKind maps the upstream hunt-data name to a LootKind.
// Accepts the canonical names plus the camel-case forms the hunt API sends.
func ParseLootKind(s string) (LootKind, error) {
	switch s {
	case "coin", "Coin":
		return KindCoin, nil
	case "dollar_sign", "dollarSign", "DollarSign", "dollar":
		return KindDollarSign, nil
	case "gift_card", "giftCard", "GiftCard", "giftcard":
		return KindGiftCard, nil
	}
	return 0, fmt.Errorf("unknown loot kind %q", s)
}

// HuntType selects how loot positions are expressed
type HuntType uint8

const (
	HuntGeolocation HuntType = iota // loot carries GeoCoord positions
	HuntProximity                   // loot carries distance + bearing string
)

func (h HuntType) String() string {
	switch h {
	case HuntGeolocation:
		return "geolocation"
	case HuntProximity:
		return "proximity"
	}
	return fmt.Sprintf("hunt(%d)", uint8(h))
}

// ParseHuntType maps a hunt type name to a HuntType.
func ParseHuntType(s string) (HuntType, error) {
	switch s {
	case "geolocation", "geo":
		return HuntGeolocation, nil
	case "proximity":
		return HuntProximity, nil
	}
	return 0, fmt.Errorf("unknown hunt type %q", s)
}

// GeoCoord is a WGS84 position in degrees
type GeoCoord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocalOffset is a metric offset from the session reference point
type LocalOffset struct {
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Neg returns the opposite offset.
func (o LocalOffset) Neg() LocalOffset {
	return LocalOffset{East: -o.East, North: -o.North}
}

// BearingPlacement places loot at a distance along a compass bearing string
// such as "N32E" relative to the player's start.
type BearingPlacement struct {
	Distance float64 `json:"distance"`
	Bearing  string  `json:"bearing"`
}

// LootDescriptor is one loot object as received from the hunt data.
// Exactly one of Position or Bearing is set, selected by the hunt type.
type LootDescriptor struct {
	ID       string            `json:"id"`
	Order    int               `json:"order"`
	Kind     LootKind          `json:"kind"`
	Position *GeoCoord         `json:"position,omitempty"`
	Bearing  *BearingPlacement `json:"bearing,omitempty"`
}

func (k LootKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown loot kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *LootKind) UnmarshalText(text []byte) error {
	parsed, err := ParseLootKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (h HuntType) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HuntType) UnmarshalText(text []byte) error {
	parsed, err := ParseHuntType(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
