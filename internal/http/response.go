package http

import "sharddb/pkg/types"

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusPartial indicates a fan-out where some shards failed.
	StatusPartial Status = "partial"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status  Status         `json:"status,omitempty"`
	Error   string         `json:"error,omitempty"`
	Shard   types.ShardID  `json:"shard,omitempty"`
	FanOut  string         `json:"fan_out,omitempty"`
	Records []types.Record `json:"records,omitempty"`
	Shards  []ShardResult  `json:"shards,omitempty"`
}

// ShardResult describes one shard in a topology listing or a fan-out.
type ShardResult struct {
	ID           types.ShardID `json:"id"`
	Driver       string        `json:"driver,omitempty"`
	Schema       string        `json:"schema,omitempty"`
	Status       Status        `json:"status,omitempty"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Records      int           `json:"records,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewShardResponse(shard types.ShardID) Response {
	return Response{Status: StatusSuccess, Shard: shard}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
