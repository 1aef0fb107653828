package core

// Location identifies a hit location on a unit. Armor maps may also carry the
// rear-armor keys returned by RearArmorKey.
type Location string

const (
	LocHead        Location = "HEAD"
	LocCenterTorso Location = "CENTER_TORSO"
	LocLeftTorso   Location = "LEFT_TORSO"
	LocRightTorso  Location = "RIGHT_TORSO"
	LocLeftArm     Location = "LEFT_ARM"
	LocRightArm    Location = "RIGHT_ARM"
	LocLeftLeg     Location = "LEFT_LEG"
	LocRightLeg    Location = "RIGHT_LEG"
)

// StandardLocations lists the biped locations in record-sheet order
var StandardLocations = []Location{
	LocHead, LocCenterTorso, LocLeftTorso, LocRightTorso,
	LocLeftArm, LocRightArm, LocLeftLeg, LocRightLeg,
}

// HasRearArmor reports whether the location carries a separate rear armor value
func (l Location) HasRearArmor() bool {
	return l == LocCenterTorso || l == LocLeftTorso || l == LocRightTorso
}

// RearArmorKey returns the armor map key used for rear hits on l
func (l Location) RearArmorKey() Location {
	return l + "_REAR"
}

// IsVital reports whether losing all structure at l destroys the unit
func (l Location) IsVital() bool {
	return l == LocHead || l == LocCenterTorso
}

// TransferLocation returns where excess damage goes once l is destroyed.
// ok is false for locations that do not transfer (head, center torso).
func (l Location) TransferLocation() (Location, bool) {
	switch l {
	case LocLeftArm, LocLeftLeg:
		return LocLeftTorso, true
	case LocRightArm, LocRightLeg:
		return LocRightTorso, true
	case LocLeftTorso, LocRightTorso:
		return LocCenterTorso, true
	default:
		return "", false
	}
}
