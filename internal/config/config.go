package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/synccore/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Transport names.
const (
	TransportMemory = "memory"
	TransportTCP    = "tcp"
)

// Error codes.
const (
	ErrCodeNotFound = "E101" // configuration path missing
	ErrCodeFormat   = "E102" // unknown file extension
	ErrCodeLoad     = "E103" // CUE or YAML syntax error
	ErrCodeSchema   = "E104" // schema violation
	ErrCodePeers    = "E105" // invalid peer table
)

// Error is a configuration failure.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsError reports whether err is a configuration error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Config is the configuration of one node and the system it belongs to.
type Config struct {
	Node  uint32 `json:"node"`
	Nodes uint32 `json:"nodes"`

	MaximumTasks           int `json:"maximum_tasks"`
	MaximumSemaphores      int `json:"maximum_semaphores"`
	MaximumMessageQueues   int `json:"maximum_message_queues"`
	MaximumPOSIXSemaphores int `json:"maximum_posix_semaphores"`
	MaximumGlobalObjects   int `json:"maximum_global_objects"`
	MaximumPackets         int `json:"maximum_packets"`

	MaximumPriority ir.Priority `json:"maximum_priority"`
	Processors      int         `json:"processors"`
	TicksPerSecond  int         `json:"ticks_per_second"`
	MPCITimeout     ir.Interval `json:"mpci_timeout"`

	// Journal is the SQLite journal path. Empty disables the journal.
	Journal   string `json:"journal"`
	Transport string `json:"transport"`

	// Peers maps node numbers to TCP addresses.
	Peers map[uint32]string `json:"-"`
}

// file mirrors Config with the peer table keyed the way CUE labels are.
type file struct {
	Config
	Peers map[string]string `json:"peers"`
}

// Default returns the configuration of a single node with every table at
// its schema default.
func Default() *Config {
	cfg, err := Parse([]byte("{}"), "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema rejects empty configuration: %v", err))
	}
	return cfg
}

// Load reads a configuration from a .cue, .yaml or .yml file, or from a
// directory holding one CUE package.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("configuration not found: %s", path)}
	}
	if info.IsDir() {
		return loadCUE(path, ".")
	}
	switch filepath.Ext(path) {
	case ".cue":
		return loadCUE(filepath.Dir(path), filepath.Base(path))
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return Parse(data, path)
	default:
		return nil, &Error{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported configuration format: %s", path)}
	}
}

// Parse decodes configuration source. filename selects the format by
// extension and labels positions in errors.
func Parse(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	switch filepath.Ext(filename) {
	case ".cue":
		v := ctx.CompileBytes(data, cue.Filename(filename))
		if err := v.Err(); err != nil {
			return nil, convert(ErrCodeLoad, err)
		}
		return resolve(ctx, v)
	case ".yaml", ".yml":
		raw := map[string]any{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Code: ErrCodeLoad, Message: fmt.Sprintf("%s: %v", filename, err)}
		}
		return FromMap(raw)
	default:
		return nil, &Error{Code: ErrCodeFormat, Message: fmt.Sprintf("unsupported configuration format: %s", filename)}
	}
}

// FromMap validates an already decoded configuration, as found embedded in
// a YAML document.
func FromMap(raw map[string]any) (*Config, error) {
	ctx := cuecontext.New()
	if raw == nil {
		raw = map[string]any{}
	}
	v := ctx.Encode(normalize(raw))
	if err := v.Err(); err != nil {
		return nil, convert(ErrCodeLoad, err)
	}
	return resolve(ctx, v)
}

func loadCUE(dir, arg string) (*Config, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{arg}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Code: ErrCodeLoad, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, convert(ErrCodeLoad, inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, convert(ErrCodeLoad, err)
	}
	return resolve(ctx, v)
}

// resolve unifies v with the schema and decodes the result.
func resolve(ctx *cue.Context, v cue.Value) (*Config, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convert(ErrCodeSchema, err)
	}

	var f file
	if err := unified.Decode(&f); err != nil {
		return nil, convert(ErrCodeSchema, err)
	}
	cfg := f.Config
	peers, err := parsePeers(f.Peers, cfg.Nodes)
	if err != nil {
		return nil, err
	}
	cfg.Peers = peers
	if cfg.Transport == TransportTCP && cfg.Nodes > 1 {
		if _, ok := cfg.Peers[cfg.Node]; !ok {
			return nil, &Error{Code: ErrCodePeers, Message: fmt.Sprintf("tcp transport needs a peer address for node %d", cfg.Node)}
		}
	}
	return &cfg, nil
}

func parsePeers(raw map[string]string, nodes uint32) (map[uint32]string, error) {
	peers := make(map[uint32]string, len(raw))
	for label, addr := range raw {
		n, err := strconv.ParseUint(label, 10, 32)
		if err != nil || n == 0 || uint32(n) > nodes {
			return nil, &Error{Code: ErrCodePeers, Message: fmt.Sprintf("peer %q is not a node in 1..%d", label, nodes)}
		}
		peers[uint32(n)] = addr
	}
	return peers, nil
}

// normalize turns YAML integer map keys into the string labels CUE expects.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case map[int]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[strconv.Itoa(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// convert reports the first CUE error with its position.
func convert(code string, err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	e := list[0]
	return &Error{
		Code:    code,
		Message: e.Error(),
		Pos:     e.Position(),
	}
}

// PeerNodes returns the configured peer node numbers in ascending order.
func (c *Config) PeerNodes() []uint32 {
	nodes := make([]uint32, 0, len(c.Peers))
	for n := range c.Peers {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// ForNode returns a copy of c that describes node n of the same system.
func (c *Config) ForNode(n uint32) *Config {
	out := *c
	out.Node = n
	out.Peers = make(map[uint32]string, len(c.Peers))
	for k, v := range c.Peers {
		out.Peers[k] = v
	}
	return &out
}
