// Package scoring runs severity factors as external plugins.
// Plugins are separate binaries speaking net/rpc through HashiCorp go-plugin.
package scoring

import (
	"net/rpc"
	"strings"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/hashicorp/go-plugin"
)

// PluginName is the key a factor is dispensed under.
const PluginName = "factor"

// HandshakeConfig must match between the host and every scoring plugin.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CAREVISIT_SCORING_PLUGIN",
	MagicCookieValue: "carevisit-scoring-v1",
}

// FactorInput is the conflict as seen by a plugin. It only carries plain fields so it can cross
// the process boundary.
type FactorInput struct {
	Kind                   string
	OverlapMinutes         int
	SubjectID              string
	SubjectName            string
	SubjectServiceType     string
	SubjectPatientType     string
	SubjectPriority        string
	SubjectResourceID      string
	SubjectMinutes         int
	SubjectEmergency       bool
	CounterpartID          string
	CounterpartName        string
	CounterpartServiceType string
	CounterpartPriority    string
	CounterpartResourceID  string
}

// NewFactorInput flattens a conflict.
func NewFactorInput(c *domain.Conflict) FactorInput {
	in := FactorInput{
		Kind:               string(c.Kind),
		OverlapMinutes:     c.OverlapMinutes,
		SubjectID:          c.Subject.ID,
		SubjectName:        c.Subject.SubjectName,
		SubjectServiceType: strings.ToLower(c.Subject.ServiceType),
		SubjectPatientType: strings.ToLower(c.Subject.PatientType),
		SubjectPriority:    string(c.Subject.Priority),
		SubjectResourceID:  c.Subject.ResourceID,
		SubjectMinutes:     c.Subject.ProposedWindow.DurationMinutes,
		SubjectEmergency:   c.Subject.IsEmergency,
		CounterpartID:      c.CounterpartID(),
	}
	switch {
	case c.CounterpartItem != nil:
		in.CounterpartName = c.CounterpartItem.SubjectName
		in.CounterpartServiceType = strings.ToLower(c.CounterpartItem.ServiceType)
		in.CounterpartPriority = string(c.CounterpartItem.Priority)
		in.CounterpartResourceID = c.CounterpartItem.ResourceID
	case c.CounterpartSchedule != nil:
		in.CounterpartName = c.CounterpartSchedule.SubjectName
		in.CounterpartServiceType = strings.ToLower(c.CounterpartSchedule.ServiceType)
		in.CounterpartPriority = string(c.CounterpartSchedule.Priority)
		in.CounterpartResourceID = c.CounterpartSchedule.ResourceID
	}
	return in
}

// Factor scores one aspect of a conflict in [0,1].
type Factor interface {
	Name() (string, error)
	Score(in FactorInput) (float64, error)
}

// FactorPlugin is the plugin.Plugin implementation for factors.
type FactorPlugin struct {
	// Impl is the concrete implementation (plugin-side).
	Impl Factor
}

var _ plugin.Plugin = (*FactorPlugin)(nil)

// Server returns the RPC server for the plugin side.
func (p *FactorPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &FactorRPCServer{Impl: p.Impl}, nil
}

// Client returns the RPC client for the host side.
func (p *FactorPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &FactorRPC{client: c}, nil
}

// PluginMap is the set of plugins a scoring binary serves.
func PluginMap(impl Factor) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{PluginName: &FactorPlugin{Impl: impl}}
}

// FactorRPC is the host-side client of a factor plugin.
type FactorRPC struct {
	client *rpc.Client
}

func (f *FactorRPC) Name() (string, error) {
	var resp string
	err := f.client.Call("Plugin.Name", new(interface{}), &resp)
	return resp, err
}

func (f *FactorRPC) Score(in FactorInput) (float64, error) {
	var resp float64
	err := f.client.Call("Plugin.Score", in, &resp)
	return resp, err
}

// FactorRPCServer exposes a Factor over net/rpc.
type FactorRPCServer struct {
	Impl Factor
}

func (s *FactorRPCServer) Name(_ interface{}, resp *string) error {
	name, err := s.Impl.Name()
	*resp = name
	return err
}

func (s *FactorRPCServer) Score(in FactorInput, resp *float64) error {
	score, err := s.Impl.Score(in)
	*resp = score
	return err
}

// Serve runs a factor plugin. It is called from the main function of a plugin binary and blocks.
func Serve(impl Factor) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(impl),
	})
}
