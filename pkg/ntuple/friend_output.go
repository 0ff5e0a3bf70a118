package ntuple

import (
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

// DefaultFriendName is the tree name used when NewFriendOutput gets none.
const DefaultFriendName = "Friends"

// FriendOutput is a Table on a new, empty tree meant to be read as a friend
// of the input tree: it carries derived columns only.
type FriendOutput struct {
	*Table
}

// NewFriendOutput creates an empty tree in output titled after input.
func NewFriendOutput(input *rowstore.Tree, output *rowstore.File, name string) (*FriendOutput, error) {
	if input == nil || output == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "input tree and output container are required")
	}
	if name == "" {
		name = DefaultFriendName
	}
	tree := rowstore.NewTree(name, "Friend tree for "+input.Name())
	return &FriendOutput{Table: NewTable(output, tree)}, nil
}
