package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/viper"
	"github.com/victorjacobs/go-nilan/climate"
	"github.com/victorjacobs/go-nilan/logging"
)

type Configuration struct {
	SerialPort  string     `mapstructure:"serial_port"`
	UnitAddress uint8      `mapstructure:"unit_address"`
	LogLevel    string     `mapstructure:"log_level"`
	HttpAddress string     `mapstructure:"http_address"`
	Mqtt        Mqtt       `mapstructure:"mqtt"`
	Sensors     Sensors    `mapstructure:"sensors"`
	Controller  Controller `mapstructure:"controller"`
	Dispatcher  Dispatcher `mapstructure:"dispatcher"`
}

type Mqtt struct {
	IpAddress       string `mapstructure:"ip_address"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// Sensors names the MQTT state topics of the two temperature sensors the
// controller is bound to.
type Sensors struct {
	TargetTempTopic  string `mapstructure:"target_temp_topic"`
	CurrentTempTopic string `mapstructure:"current_temp_topic"`
}

type Controller struct {
	DefaultSetpoint float64       `mapstructure:"default_setpoint"`
	MinSetpoint     float64       `mapstructure:"min_setpoint"`
	MaxSetpoint     float64       `mapstructure:"max_setpoint"`
	Hysteresis      float64       `mapstructure:"hysteresis"`
	MinDwell        time.Duration `mapstructure:"min_dwell"`
	Staleness       time.Duration `mapstructure:"staleness"`
	Tick            time.Duration `mapstructure:"tick"`
	QueueSize       int           `mapstructure:"queue_size"`
	InitialMode     string        `mapstructure:"initial_mode"`
	FanStep         int           `mapstructure:"fan_step"`
	HistorySize     int           `mapstructure:"history_size"`
}

type Dispatcher struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Backoff        time.Duration `mapstructure:"backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial_port", "/dev/ttyUSB0")
	v.SetDefault("unit_address", 30)
	v.SetDefault("log_level", logging.InfoLevel)
	v.SetDefault("http_address", ":8080")

	// Keys without a default are invisible to AutomaticEnv when unmarshaling
	v.SetDefault("mqtt.ip_address", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("sensors.target_temp_topic", "")
	v.SetDefault("sensors.current_temp_topic", "")

	v.SetDefault("mqtt.topic_prefix", "nilan")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	v.SetDefault("controller.default_setpoint", 21.0)
	v.SetDefault("controller.min_setpoint", 5.0)
	v.SetDefault("controller.max_setpoint", 30.0)
	v.SetDefault("controller.hysteresis", 0.5)
	v.SetDefault("controller.min_dwell", 5*time.Minute)
	v.SetDefault("controller.staleness", 10*time.Minute)
	v.SetDefault("controller.tick", 30*time.Second)
	v.SetDefault("controller.queue_size", 64)
	v.SetDefault("controller.initial_mode", "auto")
	v.SetDefault("controller.fan_step", 2)
	v.SetDefault("controller.history_size", 50)

	v.SetDefault("dispatcher.max_attempts", 3)
	v.SetDefault("dispatcher.backoff", 500*time.Millisecond)
	v.SetDefault("dispatcher.max_backoff", 5*time.Second)
	v.SetDefault("dispatcher.command_timeout", 3*time.Second)
}

// LoadConfiguration reads the given file and overlays NILAN_* environment
// variables on top of it, e.g. NILAN_CONTROLLER_HYSTERESIS=0.8.
func LoadConfiguration(filename string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(filename)
	v.SetEnvPrefix("nilan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %v: %w", filename, err)
	}

	return decode(v)
}

// Default returns the configuration consisting of defaults only.
func Default() *Configuration {
	v := viper.New()
	setDefaults(v)

	// Defaults always decode
	configuration, _ := decode(v)
	return configuration
}

func decode(v *viper.Viper) (*Configuration, error) {
	configuration := &Configuration{}
	if err := v.Unmarshal(configuration); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	return configuration, nil
}

// Validate rejects tunables the controller cannot run with.
func (c *Configuration) Validate() error {
	var errs []error

	if c.SerialPort == "" {
		errs = append(errs, errors.New("serial_port is required"))
	}
	if c.Sensors.CurrentTempTopic == "" {
		errs = append(errs, errors.New("sensors.current_temp_topic is required"))
	}

	ctrl := c.Controller
	if ctrl.MinSetpoint >= ctrl.MaxSetpoint {
		errs = append(errs, fmt.Errorf("controller.min_setpoint (%v) must be below max_setpoint (%v)", ctrl.MinSetpoint, ctrl.MaxSetpoint))
	}
	if ctrl.DefaultSetpoint < ctrl.MinSetpoint || ctrl.DefaultSetpoint > ctrl.MaxSetpoint {
		errs = append(errs, fmt.Errorf("controller.default_setpoint %v outside [%v, %v]", ctrl.DefaultSetpoint, ctrl.MinSetpoint, ctrl.MaxSetpoint))
	}
	if ctrl.Hysteresis < 0 {
		errs = append(errs, errors.New("controller.hysteresis must not be negative"))
	}
	if ctrl.MinDwell < 0 {
		errs = append(errs, errors.New("controller.min_dwell must not be negative"))
	}
	if ctrl.Staleness <= 0 {
		errs = append(errs, errors.New("controller.staleness must be positive"))
	}
	if ctrl.Tick <= 0 {
		errs = append(errs, errors.New("controller.tick must be positive"))
	}
	if ctrl.QueueSize <= 0 {
		errs = append(errs, errors.New("controller.queue_size must be positive"))
	}
	if _, err := climate.ParseMode(ctrl.InitialMode); err != nil {
		errs = append(errs, fmt.Errorf("controller.initial_mode: %w", err))
	}
	if ctrl.FanStep < 0 || ctrl.FanStep > 4 {
		errs = append(errs, fmt.Errorf("controller.fan_step %v outside [0, 4]", ctrl.FanStep))
	}

	disp := c.Dispatcher
	if disp.MaxAttempts < 1 {
		errs = append(errs, errors.New("dispatcher.max_attempts must be at least 1"))
	}
	if disp.CommandTimeout <= 0 {
		errs = append(errs, errors.New("dispatcher.command_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (m *Mqtt) ClientOptions(log *logging.Logger) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%v:1883", m.IpAddress)).
		SetClientID(m.TopicPrefix).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(m.AvailabilityTopic(), "offline", 0, true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			log.Warnw("MQTT connection lost", "err", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			log.Infow("MQTT reconnecting")
		})
}

// Topic joins the configured prefix with the given path segments.
func (m *Mqtt) Topic(segments ...string) string {
	return strings.Join(append([]string{m.TopicPrefix}, segments...), "/")
}

func (m *Mqtt) AvailabilityTopic() string {
	return m.Topic("availability")
}
