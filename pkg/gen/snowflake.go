package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

func NewNode() (*snowflake.Node, error) {
	// nodeID 1; override per instance when running more than one writer
	return snowflake.NewNode(1)
}
