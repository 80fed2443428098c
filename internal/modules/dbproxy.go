package modules

import (
	"context"
	"encoding/json"

	"github.com/modplane/server/internal/logger"
)

// dbQuery is the shape a module sends as the payload of a databaseQuery
// IPC message: a parameterized SQL statement against the relational
// store. Modules never get a raw connection — every statement is
// proxied through the core so the core remains the sole owner of the
// database handle (§1, out-of-scope "Relational store... consumed
// behind a thin query interface").
type dbQuery struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// handleDatabaseQuery answers an instance's databaseQuery message with
// either databaseResult or databaseError, correlated by the query's own
// id (§4.3).
func (s *Supervisor) handleDatabaseQuery(ctx context.Context, inst *Instance, raw json.RawMessage) {
	var envelope databaseQueryPayload
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("malformed databaseQuery envelope")
		return
	}

	var q dbQuery
	if err := json.Unmarshal(envelope.Payload, &q); err != nil {
		s.sendDatabaseError(inst, envelope.ID, "malformed query payload")
		return
	}

	if s.db == nil {
		s.sendDatabaseError(inst, envelope.ID, "database unavailable")
		return
	}

	rows, err := s.db.RawQuery(ctx, q.SQL, q.Args)
	if err != nil {
		logger.Module(inst.ModuleName).Error().Err(err).Str("sql", q.SQL).Msg("module database query failed")
		s.sendDatabaseError(inst, envelope.ID, "query failed")
		return
	}

	body, err := json.Marshal(rows)
	if err != nil {
		s.sendDatabaseError(inst, envelope.ID, "failed to encode result")
		return
	}

	if err := inst.transport.Send("databaseResult", databaseResultPayload{ID: envelope.ID, Payload: body}); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("failed to deliver databaseResult")
	}
}

func (s *Supervisor) sendDatabaseError(inst *Instance, id, message string) {
	if err := inst.transport.Send("databaseError", databaseErrorPayload{ID: id, Payload: message}); err != nil {
		logger.Module(inst.ModuleName).Warn().Err(err).Msg("failed to deliver databaseError")
	}
}
