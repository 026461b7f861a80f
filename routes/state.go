package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/victorjacobs/go-nilan/climate"
	"github.com/victorjacobs/go-nilan/logging"
	"github.com/victorjacobs/go-nilan/nilan"
)

const (
	refreshInterval = 30 * time.Second
	unitReadTimeout = 10 * time.Second
)

// Controller is the read side of climate.Controller.
type Controller interface {
	Snapshot() climate.Status
	History() []climate.Transition
}

type Unit interface {
	GetStatus(ctx context.Context) (*nilan.Status, error)
}

type unitResponse struct {
	Running         bool      `json:"running"`
	OperationMode   string    `json:"operation_mode"`
	ControlState    string    `json:"control_state"`
	VentilationStep int       `json:"ventilation_step"`
	TargetTemp      float64   `json:"target_temperature"`
	RoomTemp        float64   `json:"room_temperature"`
	OutdoorTemp     float64   `json:"outdoor_temperature"`
	SupplyTemp      float64   `json:"supply_temperature"`
	Humidity        float64   `json:"humidity"`
	ActiveAlarms    int       `json:"active_alarms"`
	LastRefreshed   time.Time `json:"last_refreshed"`
}

type stateResponse struct {
	Controller climate.Status `json:"controller"`
	Unit       *unitResponse  `json:"unit,omitempty"`
}

type cache struct {
	mutex         sync.Mutex
	lastRefreshed time.Time
	unit          *unitResponse
}

func State(ctrl Controller, unit Unit, log *logging.Logger) httprouter.Handle {
	return state(ctrl, unit, log, time.Now)
}

func state(ctrl Controller, unit Unit, log *logging.Logger, now func() time.Time) httprouter.Handle {
	c := &cache{}

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		c.mutex.Lock()
		if c.unit == nil || now().Sub(c.lastRefreshed) > refreshInterval {
			ctx, cancel := context.WithTimeout(r.Context(), unitReadTimeout)
			status, err := unit.GetStatus(ctx)
			cancel()

			if err != nil {
				// Keep serving the previous unit state, if any
				log.Warnw("Failed to refresh unit state", "err", err)
			} else {
				c.lastRefreshed = now()
				c.unit = toUnitResponse(status, c.lastRefreshed)

				log.Debugw("Refreshed web cache")
			}
		}
		resp := stateResponse{
			Controller: ctrl.Snapshot(),
			Unit:       c.unit,
		}
		c.mutex.Unlock()

		writeJSON(w, resp, log)
	}
}

func History(ctrl Controller, log *logging.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, ctrl.History(), log)
	}
}

func toUnitResponse(status *nilan.Status, refreshed time.Time) *unitResponse {
	return &unitResponse{
		Running:         status.Control.Running,
		OperationMode:   status.Control.OperationMode,
		ControlState:    status.Control.State,
		VentilationStep: status.Settings.VentilationStep,
		TargetTemp:      status.Settings.TargetTemp,
		RoomTemp:        status.Temperatures.Room,
		OutdoorTemp:     status.Temperatures.Outdoor,
		SupplyTemp:      status.Temperatures.Supply,
		Humidity:        status.Temperatures.Humidity,
		ActiveAlarms:    status.ActiveAlarms,
		LastRefreshed:   refreshed,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}, log *logging.Logger) {
	marshaled, err := json.Marshal(v)
	if err != nil {
		log.Errorw("Error marshaling response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(marshaled)
}
