package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/l4slab/slicecall/pkg/logger"
)

const (
	generatedCLIFlagUsage = "generated"

	// AllCodecs leaves the negotiated video codec set untouched
	AllCodecs = "All Codecs"

	MinMeasurementInterval = 10 * time.Millisecond

	SinkNone = ""
	SinkLog  = "log"
	SinkHTTP = "http"
	SinkS3   = "s3"
)

var (
	ErrSignalURLNotSet   = errors.New("signaling url must be provided")
	ErrClientIDNotSet    = errors.New("client_id must be provided")
	ErrInvalidBitrate    = errors.New("min bitrate must not exceed max bitrate")
	ErrUnknownSink       = errors.New("unknown measurement sink")
	ErrSinkNotConfigured = errors.New("measurement sink is missing its endpoint")
)

type Config struct {
	ClientID    string            `yaml:"client_id,omitempty"`
	Name        string            `yaml:"name,omitempty"`
	Signaling   SignalingConfig   `yaml:"signaling,omitempty"`
	ICE         ICEConfig         `yaml:"ice,omitempty"`
	Call        CallConfig        `yaml:"call,omitempty"`
	Slice       SliceConfig       `yaml:"slice,omitempty"`
	Radio       RadioConfig       `yaml:"radio,omitempty"`
	Measurement MeasurementConfig `yaml:"measurement,omitempty"`
	Debug       DebugConfig       `yaml:"debug,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`

	Development bool `yaml:"development,omitempty"`
}

type SignalingConfig struct {
	URL          string        `yaml:"url,omitempty"`
	PingInterval time.Duration `yaml:"ping_interval,omitempty"`
	// how long to wait for a peer answer before giving up on an outgoing call
	AnswerTimeout time.Duration `yaml:"answer_timeout,omitempty"`
}

type CallConfig struct {
	TrickleICE     bool   `yaml:"trickle_ice,omitempty"`
	VideoCodec     string `yaml:"video_codec,omitempty"`
	MinBitrateKbps int    `yaml:"min_bitrate_kbps,omitempty"`
	MaxBitrateKbps int    `yaml:"max_bitrate_kbps,omitempty"`
	// enables RFC 8888 feedback and SCReAM v2 on engines that support it
	UseScream bool `yaml:"use_scream,omitempty"`
}

type SliceConfig struct {
	Enabled   bool     `yaml:"enabled,omitempty"`
	Interface string   `yaml:"interface,omitempty"`
	Addresses []string `yaml:"addresses,omitempty"`
	// when set, non-slice addresses are taken from this list instead of local interfaces
	NonSliceAddresses []string      `yaml:"non_slice_addresses,omitempty"`
	DiscoverPublicIP  bool          `yaml:"discover_public_ip,omitempty"`
	STUNServers       []string      `yaml:"stun_servers,omitempty"`
	RefreshDebounce   time.Duration `yaml:"refresh_debounce,omitempty"`
}

type RadioConfig struct {
	CellID       int64    `yaml:"cell_id,omitempty"`
	PCI          int      `yaml:"pci,omitempty"`
	BandMHz      int      `yaml:"band_mhz,omitempty"`
	NRStandalone bool     `yaml:"nr_standalone,omitempty"`
	Dbm          *int     `yaml:"dbm,omitempty"`
	Latitude     *float64 `yaml:"latitude,omitempty"`
	Longitude    *float64 `yaml:"longitude,omitempty"`
	OnWifi       bool     `yaml:"on_wifi,omitempty"`
}

type MeasurementConfig struct {
	Enabled         bool           `yaml:"enabled,omitempty"`
	Sink            string         `yaml:"sink,omitempty"`
	Interval        time.Duration  `yaml:"interval,omitempty"`
	BatchSize       int            `yaml:"batch_size,omitempty"`
	IncludeLocation bool           `yaml:"include_location,omitempty"`
	SessionName     string         `yaml:"session_name,omitempty"`
	StreamID        string         `yaml:"stream_id,omitempty"`
	HTTP            HTTPSinkConfig `yaml:"http,omitempty"`
	S3              S3SinkConfig   `yaml:"s3,omitempty"`
	Log             LogSinkConfig  `yaml:"log,omitempty"`
}

type HTTPSinkConfig struct {
	URL      string        `yaml:"url,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

type S3SinkConfig struct {
	// s3://bucket/prefix
	URI    string `yaml:"uri,omitempty"`
	Region string `yaml:"region,omitempty"`
	// static key pair, the default AWS credential chain is used when empty
	AccessKey string `yaml:"access_key,omitempty"`
	Secret    string `yaml:"secret,omitempty"`
}

type LogSinkConfig struct {
	// optional JSON lines file, in addition to the process log
	File string `yaml:"file,omitempty"`
}

type DebugConfig struct {
	Port uint32 `yaml:"port,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

var DefaultStunServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
}

var DefaultConfig = Config{
	Name: "slicecall",
	Signaling: SignalingConfig{
		PingInterval:  10 * time.Second,
		AnswerTimeout: 30 * time.Second,
	},
	ICE: ICEConfig{
		Servers: []ICEServerConfig{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	},
	Call: CallConfig{
		TrickleICE:     true,
		VideoCodec:     AllCodecs,
		MinBitrateKbps: 300,
		MaxBitrateKbps: 200000,
	},
	Slice: SliceConfig{
		RefreshDebounce: 500 * time.Millisecond,
	},
	Measurement: MeasurementConfig{
		Enabled:         true,
		Sink:            SinkLog,
		Interval:        50 * time.Millisecond,
		BatchSize:       200,
		IncludeLocation: true,
		SessionName:     "webrtc-l4s",
		StreamID:        "inbound-video",
		HTTP: HTTPSinkConfig{
			Timeout: 10 * time.Second,
		},
	},
	Logging: LoggingConfig{
		Config: logger.Config{
			PionLevel: "error",
		},
	},
}

func NewConfig(confString string, strictMode bool, c *cli.Context, baseFlags []cli.Flag) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	err = yaml.Unmarshal(marshalled, &conf)
	if err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c, baseFlags); err != nil {
			return nil, err
		}
	}

	if err := conf.ICE.Validate(); err != nil {
		return nil, errors.Wrap(err, "could not validate ICE config")
	}

	if err := conf.Measurement.normalize(); err != nil {
		return nil, errors.Wrap(err, "could not validate measurement config")
	}

	if conf.Call.MinBitrateKbps > conf.Call.MaxBitrateKbps && conf.Call.MaxBitrateKbps > 0 {
		return nil, ErrInvalidBitrate
	}
	if conf.Call.VideoCodec == "" {
		conf.Call.VideoCodec = AllCodecs
	}

	// expand env vars in filenames
	file, err := homedir.Expand(os.ExpandEnv(conf.Measurement.Log.File))
	if err != nil {
		return nil, err
	}
	conf.Measurement.Log.File = file

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}

	return &conf, nil
}

// ValidateForCall checks the settings that only matter once the client talks to peers.
func (conf *Config) ValidateForCall() error {
	if conf.Signaling.URL == "" {
		return ErrSignalURLNotSet
	}
	if conf.ClientID == "" {
		return ErrClientIDNotSet
	}
	return nil
}

// LoggingEnabled reports whether measurement items should be produced at all.
func (m *MeasurementConfig) LoggingEnabled() bool {
	return m.Enabled && m.Sink != SinkNone
}

func (m *MeasurementConfig) normalize() error {
	if m.Interval < MinMeasurementInterval {
		m.Interval = MinMeasurementInterval
	}
	if m.BatchSize < 1 {
		m.BatchSize = 1
	}
	if m.SessionName == "" {
		m.SessionName = DefaultConfig.Measurement.SessionName
	}
	if m.StreamID == "" {
		m.StreamID = DefaultConfig.Measurement.StreamID
	}

	if !m.Enabled {
		return nil
	}
	switch m.Sink {
	case SinkNone, SinkLog:
	case SinkHTTP:
		if m.HTTP.URL == "" {
			return errors.Wrap(ErrSinkNotConfigured, SinkHTTP)
		}
	case SinkS3:
		if m.S3.URI == "" {
			return errors.Wrap(ErrSinkNotConfigured, SinkS3)
		}
	default:
		return errors.Wrapf(ErrUnknownSink, "%q", m.Sink)
	}
	return nil
}

type configNode struct {
	TypeNode  reflect.Value
	TagPrefix string
}

func (conf *Config) ToCLIFlagNames(existingFlags []cli.Flag) map[string]reflect.Value {
	existingFlagNames := map[string]bool{}
	for _, flag := range existingFlags {
		for _, flagName := range flag.Names() {
			existingFlagNames[flagName] = true
		}
	}

	flagNames := map[string]reflect.Value{}
	var currNode configNode
	nodes := []configNode{{reflect.ValueOf(conf).Elem(), ""}}
	for len(nodes) > 0 {
		currNode, nodes = nodes[0], nodes[1:]
		for i := 0; i < currNode.TypeNode.NumField(); i++ {
			// inspect yaml tag from struct field to get path
			field := currNode.TypeNode.Type().Field(i)
			yamlTagArray := strings.SplitN(field.Tag.Get("yaml"), ",", 2)
			yamlTag := yamlTagArray[0]
			isInline := false
			if len(yamlTagArray) > 1 && yamlTagArray[1] == "inline" {
				isInline = true
			}
			if (yamlTag == "" && (!isInline || currNode.TagPrefix == "")) || yamlTag == "-" {
				continue
			}
			yamlPath := yamlTag
			if currNode.TagPrefix != "" {
				if isInline {
					yamlPath = currNode.TagPrefix
				} else {
					yamlPath = fmt.Sprintf("%s.%s", currNode.TagPrefix, yamlTag)
				}
			}
			if existingFlagNames[yamlPath] {
				continue
			}

			// map flag name to value
			value := currNode.TypeNode.Field(i)
			if value.Kind() == reflect.Struct {
				nodes = append(nodes, configNode{value, yamlPath})
			} else {
				flagNames[yamlPath] = value
			}
		}
	}

	return flagNames
}

func GenerateCLIFlags(existingFlags []cli.Flag, hidden bool) ([]cli.Flag, error) {
	blankConfig := &Config{}
	flags := make([]cli.Flag, 0)
	for name, value := range blankConfig.ToCLIFlagNames(existingFlags) {
		kind := value.Kind()
		if kind == reflect.Ptr {
			kind = value.Type().Elem().Kind()
		}

		var flag cli.Flag
		envVar := fmt.Sprintf("SLICECALL_%s", strings.ToUpper(strings.Replace(name, ".", "_", -1)))

		switch kind {
		case reflect.Bool:
			flag = &cli.BoolFlag{
				Name:   name,
				Usage:  generatedCLIFlagUsage,
				Hidden: hidden,
			}
		case reflect.String:
			flag = &cli.StringFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int, reflect.Int32:
			flag = &cli.IntFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int64:
			if value.Type() == reflect.TypeOf(time.Duration(0)) {
				flag = &cli.DurationFlag{
					Name:    name,
					EnvVars: []string{envVar},
					Usage:   generatedCLIFlagUsage,
					Hidden:  hidden,
				}
				break
			}
			flag = &cli.Int64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			flag = &cli.UintFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint64:
			flag = &cli.Uint64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Float32, reflect.Float64:
			flag = &cli.Float64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Slice:
			if value.Type().Elem().Kind() != reflect.String {
				continue
			}
			flag = &cli.StringSliceFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Map, reflect.Struct:
			continue
		default:
			return flags, fmt.Errorf("cli flag generation unsupported for config type: %s is a %s", name, kind.String())
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

func (conf *Config) updateFromCLI(c *cli.Context, baseFlags []cli.Flag) error {
	generatedFlagNames := conf.ToCLIFlagNames(baseFlags)
	for _, flag := range c.App.Flags {
		flagName := flag.Names()[0]

		// the `c.App.Name != "test"` check is needed because `c.IsSet(...)` is always false in unit tests
		if !c.IsSet(flagName) && c.App.Name != "test" {
			continue
		}

		configValue, ok := generatedFlagNames[flagName]
		if !ok {
			continue
		}

		kind := configValue.Kind()
		if kind == reflect.Ptr {
			// instantiate value to be set
			configValue.Set(reflect.New(configValue.Type().Elem()))

			kind = configValue.Type().Elem().Kind()
			configValue = configValue.Elem()
		}

		switch kind {
		case reflect.Bool:
			configValue.SetBool(c.Bool(flagName))
		case reflect.String:
			configValue.SetString(c.String(flagName))
		case reflect.Int, reflect.Int32, reflect.Int64:
			if configValue.Type() == reflect.TypeOf(time.Duration(0)) {
				configValue.SetInt(int64(c.Duration(flagName)))
				break
			}
			configValue.SetInt(c.Int64(flagName))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			configValue.SetUint(c.Uint64(flagName))
		case reflect.Float32, reflect.Float64:
			configValue.SetFloat(c.Float64(flagName))
		case reflect.Slice:
			configValue.Set(reflect.ValueOf(c.StringSlice(flagName)))
		default:
			return fmt.Errorf("unsupported generated cli flag type for config: %s is a %s", flagName, kind.String())
		}
	}

	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("signal-url") {
		conf.Signaling.URL = c.String("signal-url")
	}
	if c.IsSet("client-id") {
		conf.ClientID = c.String("client-id")
	}
	if c.IsSet("name") {
		conf.Name = c.String("name")
	}
	if c.IsSet("video-codec") {
		conf.Call.VideoCodec = c.String("video-codec")
	}
	if c.IsSet("trickle") {
		conf.Call.TrickleICE = c.Bool("trickle")
	}
	if c.IsSet("log-level") {
		conf.Logging.Level = c.String("log-level")
	}
	if c.IsSet("debug-port") {
		conf.Debug.Port = uint32(c.Uint("debug-port"))
	}
	return nil
}

// GetConfigString returns the inline config body if given, otherwise the contents of configFile.
func GetConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	path, err := homedir.Expand(configFile)
	if err != nil {
		return "", err
	}
	outConfigBody, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(outConfigBody), nil
}

func InitLoggerFromConfig(config LoggingConfig) {
	logger.InitFromConfig(config.Config, "slicecall")
}
