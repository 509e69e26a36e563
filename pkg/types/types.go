package types

import "fmt"

// ShardID names one physical or logical shard. Immutable once assigned.
type ShardID string

// RoutingKey is the value a strategy maps to a shard.
type RoutingKey = any

// Record is a row of the users table. ID is both the primary key and the
// routing key.
type Record struct {
	ID  int64 `json:"id" yaml:"id"`
	Age int64 `json:"age" yaml:"age"`
}

func (r Record) String() string {
	return fmt.Sprintf("Record{ID=%d, Age=%d}", r.ID, r.Age)
}

// Descriptor describes how to reach one shard: the backing-store driver, the
// connection target and the schema its tables live in.
type Descriptor struct {
	ID     ShardID `yaml:"id" json:"id"`
	Driver string  `yaml:"driver" json:"driver"`
	DSN    string  `yaml:"dsn" json:"dsn"`
	Schema string  `yaml:"schema,omitempty" json:"schema,omitempty"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.ID, d.Driver)
}
