package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SkinPipe/internal/models"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/routine"
	"github.com/BTreeMap/SkinPipe/internal/util"
)

// routineCatalog lists what the routine builder offers.
type routineCatalog struct {
	Steps    []models.RoutineStep    `json:"steps"`
	Products []models.RoutineProduct `json:"products"`
	Defaults models.ReminderTimes    `json:"default_reminders"`
}

func (s *Server) routineCatalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(routineCatalog{
		Steps:    routine.Steps(),
		Products: routine.Products(),
		Defaults: models.DefaultReminderTimes(),
	}))
}

// createOwnerHandler hands out a fresh owner id for clients without one.
func (s *Server) createOwnerHandler(w http.ResponseWriter, r *http.Request) {
	owner := util.GenerateOwnerID()
	settings, err := s.routines.Load(owner)
	if err != nil {
		writeError(w, "createOwnerHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(settings))
}

func (s *Server) getRoutineHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.routines.Load(r.PathValue("owner"))
	if err != nil {
		writeError(w, "getRoutineHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(settings))
}

func (s *Server) setStepHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StepProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	settings, err := s.routines.SetProduct(r.PathValue("owner"), r.PathValue("step"), req.ProductID)
	if err != nil {
		writeError(w, "setStepHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(settings))
}

func (s *Server) setRemindersHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ReminderTimes
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	owner := r.PathValue("owner")
	settings, err := s.routines.SetReminders(owner, req)
	if err != nil {
		writeError(w, "setRemindersHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(settings))
}

func (s *Server) setContactHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	phone := ""
	if req.Phone != "" {
		canonical, err := notify.CanonicalPhone(req.Phone)
		if err != nil {
			writeError(w, "setContactHandler", err)
			return
		}
		phone = canonical
	}
	owner := r.PathValue("owner")
	settings, err := s.routines.SetContact(owner, phone)
	if err != nil {
		writeError(w, "setContactHandler", err)
		return
	}
	slog.Info("Server.setContactHandler: contact updated", "owner", owner, "reminders", phone != "")
	writeJSONResponse(w, http.StatusOK, models.Success(settings))
}
