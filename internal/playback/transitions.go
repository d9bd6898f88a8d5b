package playback

import "github.com/therealutkarshpriyadarshi/coursedub/pkg/models"

type sessionTransition struct {
	From models.EngineState
	To   models.EngineState
}

var sessionTransitions = []sessionTransition{
	{From: models.EngineInitializing, To: models.EngineSelecting},
	{From: models.EngineInitializing, To: models.EngineError},

	{From: models.EngineSelecting, To: models.EngineManifestLoading},
	{From: models.EngineSelecting, To: models.EngineError},

	// Retry stays in ManifestLoading
	{From: models.EngineManifestLoading, To: models.EngineManifestLoading},
	{From: models.EngineManifestLoading, To: models.EngineReady},
	{From: models.EngineManifestLoading, To: models.EngineError},

	{From: models.EngineReady, To: models.EngineSwitching},
	{From: models.EngineSwitching, To: models.EngineReady},
}

// sessionTransitionAllowed reports whether from -> to is an edge of the
// session state machine.
func sessionTransitionAllowed(from, to models.EngineState) bool {
	for _, tr := range sessionTransitions {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}
