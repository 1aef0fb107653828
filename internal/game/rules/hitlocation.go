package rules

import (
	"fmt"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// HitLocationFunc maps a 2d6 roll and attack arc to the location struck.
// An error aborts the whole attack.
type HitLocationFunc func(roll int, arc core.Arc) (core.Location, error)

// hitTable is indexed by roll-2. Rear hits use the same locations; the rear
// armor of the torsos is selected when damage is applied.
var hitTable = [11]core.Location{
	core.LocCenterTorso, // 2
	core.LocRightArm,    // 3
	core.LocRightArm,    // 4
	core.LocRightLeg,    // 5
	core.LocRightTorso,  // 6
	core.LocCenterTorso, // 7
	core.LocLeftTorso,   // 8
	core.LocLeftLeg,     // 9
	core.LocLeftArm,     // 10
	core.LocLeftArm,     // 11
	core.LocHead,        // 12
}

// StandardHitLocation is the biped 2d6 hit location table
func StandardHitLocation(roll int, arc core.Arc) (core.Location, error) {
	if roll < 2 || roll > 12 {
		return "", fmt.Errorf("hit location roll %d out of range", roll)
	}
	return hitTable[roll-2], nil
}

var punchTable = [6]core.Location{
	core.LocLeftArm, core.LocLeftTorso, core.LocCenterTorso,
	core.LocRightTorso, core.LocRightArm, core.LocHead,
}

// PunchLocation maps a d6 to the location a punch strikes
func PunchLocation(d6 int) core.Location {
	return punchTable[min(max(d6, 1), 6)-1]
}

// KickLocation maps a d6 to the leg a kick strikes
func KickLocation(d6 int) core.Location {
	if d6 <= 3 {
		return core.LocRightLeg
	}
	return core.LocLeftLeg
}

// rearArcAngle is the angle off the target's facing beyond which an attack is from behind
const rearArcAngle = 120.0

// AttackArc returns whether an attack from attackerPos strikes the target's front or rear
func AttackArc(attackerPos, targetPos core.Hex, targetFacing core.Facing) core.Arc {
	if targetFacing.AngleFrom(targetPos, attackerPos) > rearArcAngle+1e-9 {
		return core.ArcRear
	}
	return core.ArcFront
}
