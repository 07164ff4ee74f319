package engine

import (
	"github.com/stellarworks/voyager/internal/app/domain/mission"
	"github.com/stellarworks/voyager/internal/app/domain/profile"
	"github.com/stellarworks/voyager/internal/errors"
)

// canStart checks whether the ship's crew satisfies the mission's requirement.
// Pure; called only inside the start transaction.
func canStart(ship profile.ShipStatus, def mission.Definition) error {
	if ship.CrewCurrent == nil {
		return errors.IncompleteShipData()
	}
	if def.CrewRequired == nil {
		return errors.IncompleteMissionData(def.ID)
	}
	if *ship.CrewCurrent < *def.CrewRequired {
		return errors.InsufficientCrew(*ship.CrewCurrent, *def.CrewRequired)
	}
	return nil
}
