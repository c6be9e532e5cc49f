// Package ingest accepts observations reported by other services over HTTP.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/response"
)

const maxBatchBytes = 1 << 20

// Sink receives accepted observations; false means the observation was dropped.
type Sink interface {
	Submit(o model.Observation) bool
}

type SinkFunc func(o model.Observation) bool

func (f SinkFunc) Submit(o model.Observation) bool { return f(o) }

// Source is the POST /ingest/observations endpoint. The body is one
// observation object or an array of them; the whole batch is rejected when any
// element is invalid.
type Source struct {
	sink     Sink
	validate *validator.Validate
	log      zerolog.Logger
}

func NewSource(sink Sink, validate *validator.Validate, log zerolog.Logger) *Source {
	return &Source{sink: sink, validate: validate, log: log}
}

type result struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

func (s *Source) Handle(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxBatchBytes))
	if err != nil {
		return response.Error(c, http.StatusRequestEntityTooLarge, "body too large", err.Error())
	}
	batch, err := decode(body)
	if err != nil {
		return response.BadRequest(c, "invalid observations", err.Error())
	}
	for i, o := range batch {
		if err := s.validate.Struct(o); err != nil {
			return response.BadRequest(c, "invalid observations", fmt.Sprintf("observation %d: %v", i, err))
		}
	}

	var res result
	for _, o := range batch {
		if s.sink.Submit(o) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	s.log.Debug().Int("accepted", res.Accepted).Int("dropped", res.Dropped).Msg("ingested observations")
	return response.Accepted(c, res, "")
}

func decode(body []byte) ([]model.Observation, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var batch []model.Observation
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, errors.New("empty batch")
		}
		return batch, nil
	}
	var o model.Observation
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, err
	}
	return []model.Observation{o}, nil
}
