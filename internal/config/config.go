// Package config loads the synthesis pipeline configuration from flags,
// environment variables and an optional config file, in that precedence
// order.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-melsynth/internal/audio"
)

type Config struct {
	LogLevel string      `mapstructure:"log_level"`
	Paths    PathsConfig `mapstructure:"paths"`
	Audio    AudioConfig `mapstructure:"audio"`
	Model    ModelConfig `mapstructure:"model"`
	Synth    SynthConfig `mapstructure:"synth"`
}

type PathsConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	MetadataPath   string `mapstructure:"metadata_path"`
	MelDir         string `mapstructure:"mel_dir"`
	EmbedDir       string `mapstructure:"embed_dir"`
	OutputDir      string `mapstructure:"output_dir"`
}

type AudioConfig struct {
	SampleRate          int     `mapstructure:"sample_rate"`
	NFFT                int     `mapstructure:"n_fft"`
	HopSize             int     `mapstructure:"hop_size"`
	WinSize             int     `mapstructure:"win_size"`
	NumMels             int     `mapstructure:"num_mels"`
	FMin                float64 `mapstructure:"fmin"`
	FMax                float64 `mapstructure:"fmax"`
	MinLevelDB          float64 `mapstructure:"min_level_db"`
	RefLevelDB          float64 `mapstructure:"ref_level_db"`
	MaxAbsValue         float64 `mapstructure:"max_abs_value"`
	Preemphasis         float64 `mapstructure:"preemphasis"`
	Preemphasize        bool    `mapstructure:"preemphasize"`
	SignalNormalization bool    `mapstructure:"signal_normalization"`
	SymmetricMels       bool    `mapstructure:"symmetric_mels"`
	AllowClipping       bool    `mapstructure:"allow_clipping"`
	Power               float64 `mapstructure:"power"`
	GriffinLimIters     int     `mapstructure:"griffin_lim_iters"`
}

type ModelConfig struct {
	Reduction           int64 `mapstructure:"reduction"`
	MaxSteps            int64 `mapstructure:"max_steps"`
	Seed                int64 `mapstructure:"seed"`
	PrenetDropoutAlways bool  `mapstructure:"prenet_dropout_always"`
}

type SynthConfig struct {
	// Inversion selects the mel-to-waveform strategy: "griffinlim",
	// "direct" or "vocoder".
	Inversion        string `mapstructure:"inversion"`
	VocoderModelPath string `mapstructure:"vocoder_model_path"`
	ORTLibraryPath   string `mapstructure:"ort_library_path"`
	ConvWorkers      int    `mapstructure:"conv_workers"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	a := audio.DefaultConfig()

	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			CheckpointPath: "models/synthesizer.safetensors",
			MetadataPath:   "data/train.txt",
			MelDir:         "data/mels",
			EmbedDir:       "data/embeds",
			OutputDir:      "out",
		},
		Audio: AudioConfig{
			SampleRate:          a.SampleRate,
			NFFT:                a.NFFT,
			HopSize:             a.HopSize,
			WinSize:             a.WinSize,
			NumMels:             a.NumMels,
			FMin:                a.FMin,
			FMax:                a.FMax,
			MinLevelDB:          a.MinLevelDB,
			RefLevelDB:          a.RefLevelDB,
			MaxAbsValue:         a.MaxAbsValue,
			Preemphasis:         a.Preemphasis,
			Preemphasize:        a.Preemphasize,
			SignalNormalization: a.SignalNormalization,
			SymmetricMels:       a.SymmetricMels,
			AllowClipping:       a.AllowClipping,
			Power:               a.Power,
			GriffinLimIters:     a.GriffinLimIters,
		},
		Model: ModelConfig{
			Reduction:           2,
			MaxSteps:            2000,
			Seed:                1,
			PrenetDropoutAlways: true,
		},
		Synth: SynthConfig{
			Inversion:   "griffinlim",
			ConvWorkers: 0,
		},
	}
}

// TransformConfig maps the audio section onto the spectrogram transform.
func (a AudioConfig) TransformConfig(inversion string) audio.Config {
	cfg := audio.DefaultConfig()
	cfg.SampleRate = a.SampleRate
	cfg.NFFT = a.NFFT
	cfg.HopSize = a.HopSize
	cfg.WinSize = a.WinSize
	cfg.NumMels = a.NumMels
	cfg.FMin = a.FMin
	cfg.FMax = a.FMax
	cfg.MinLevelDB = a.MinLevelDB
	cfg.RefLevelDB = a.RefLevelDB
	cfg.MaxAbsValue = a.MaxAbsValue
	cfg.Preemphasis = a.Preemphasis
	cfg.Preemphasize = a.Preemphasize
	cfg.SignalNormalization = a.SignalNormalization
	cfg.SymmetricMels = a.SymmetricMels
	cfg.AllowClipping = a.AllowClipping
	cfg.Power = a.Power
	cfg.GriffinLimIters = a.GriffinLimIters

	if inversion == "direct" {
		cfg.Inversion = audio.InversionDirect
	}

	return cfg
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
	fs.String("paths-checkpoint-path", defaults.Paths.CheckpointPath, "Path to synthesizer checkpoint (.safetensors)")
	fs.String("paths-metadata-path", defaults.Paths.MetadataPath, "Path to dataset metadata file")
	fs.String("paths-mel-dir", defaults.Paths.MelDir, "Directory holding mel feature files")
	fs.String("paths-embed-dir", defaults.Paths.EmbedDir, "Directory holding speaker embedding files")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory for synthesized output")
	fs.Int("audio-sample-rate", defaults.Audio.SampleRate, "Waveform sample rate in Hz")
	fs.Int("audio-n-fft", defaults.Audio.NFFT, "FFT size (power of two)")
	fs.Int("audio-hop-size", defaults.Audio.HopSize, "STFT hop size in samples")
	fs.Int("audio-win-size", defaults.Audio.WinSize, "STFT window size in samples")
	fs.Int("audio-num-mels", defaults.Audio.NumMels, "Mel filterbank channel count")
	fs.Int("audio-griffin-lim-iters", defaults.Audio.GriffinLimIters, "Griffin-Lim iteration count")
	fs.Int64("model-reduction", defaults.Model.Reduction, "Decoder reduction factor (frames per step)")
	fs.Int64("model-max-steps", defaults.Model.MaxSteps, "Generation frame cap")
	fs.Int64("model-seed", defaults.Model.Seed, "Seed for the model's stochastic parts")
	fs.Bool("model-prenet-dropout-always", defaults.Model.PrenetDropoutAlways, "Keep prenet dropout active outside training")
	fs.String("synth-inversion", defaults.Synth.Inversion, "Waveform inversion: griffinlim, direct or vocoder")
	fs.String("synth-vocoder-model-path", defaults.Synth.VocoderModelPath, "Path to vocoder ONNX model")
	fs.String("synth-ort-library-path", defaults.Synth.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Synth.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --synth-ort-library-path)")
	fs.Int("synth-conv-workers", defaults.Synth.ConvWorkers, "Convolution worker count (0 = GOMAXPROCS)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	registerAliases(v)

	v.SetEnvPrefix("MELSYNTH")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)

	if err := v.BindEnv("synth.ort_library_path", "MELSYNTH_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}

	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("melsynth")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.checkpoint_path", c.Paths.CheckpointPath)
	v.SetDefault("paths.metadata_path", c.Paths.MetadataPath)
	v.SetDefault("paths.mel_dir", c.Paths.MelDir)
	v.SetDefault("paths.embed_dir", c.Paths.EmbedDir)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)
	v.SetDefault("audio.n_fft", c.Audio.NFFT)
	v.SetDefault("audio.hop_size", c.Audio.HopSize)
	v.SetDefault("audio.win_size", c.Audio.WinSize)
	v.SetDefault("audio.num_mels", c.Audio.NumMels)
	v.SetDefault("audio.fmin", c.Audio.FMin)
	v.SetDefault("audio.fmax", c.Audio.FMax)
	v.SetDefault("audio.min_level_db", c.Audio.MinLevelDB)
	v.SetDefault("audio.ref_level_db", c.Audio.RefLevelDB)
	v.SetDefault("audio.max_abs_value", c.Audio.MaxAbsValue)
	v.SetDefault("audio.preemphasis", c.Audio.Preemphasis)
	v.SetDefault("audio.preemphasize", c.Audio.Preemphasize)
	v.SetDefault("audio.signal_normalization", c.Audio.SignalNormalization)
	v.SetDefault("audio.symmetric_mels", c.Audio.SymmetricMels)
	v.SetDefault("audio.allow_clipping", c.Audio.AllowClipping)
	v.SetDefault("audio.power", c.Audio.Power)
	v.SetDefault("audio.griffin_lim_iters", c.Audio.GriffinLimIters)
	v.SetDefault("model.reduction", c.Model.Reduction)
	v.SetDefault("model.max_steps", c.Model.MaxSteps)
	v.SetDefault("model.seed", c.Model.Seed)
	v.SetDefault("model.prenet_dropout_always", c.Model.PrenetDropoutAlways)
	v.SetDefault("synth.inversion", c.Synth.Inversion)
	v.SetDefault("synth.vocoder_model_path", c.Synth.VocoderModelPath)
	v.SetDefault("synth.ort_library_path", c.Synth.ORTLibraryPath)
	v.SetDefault("synth.conv_workers", c.Synth.ConvWorkers)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.checkpoint_path", "paths-checkpoint-path")
	v.RegisterAlias("paths.metadata_path", "paths-metadata-path")
	v.RegisterAlias("paths.mel_dir", "paths-mel-dir")
	v.RegisterAlias("paths.embed_dir", "paths-embed-dir")
	v.RegisterAlias("paths.output_dir", "paths-output-dir")
	v.RegisterAlias("audio.sample_rate", "audio-sample-rate")
	v.RegisterAlias("audio.n_fft", "audio-n-fft")
	v.RegisterAlias("audio.hop_size", "audio-hop-size")
	v.RegisterAlias("audio.win_size", "audio-win-size")
	v.RegisterAlias("audio.num_mels", "audio-num-mels")
	v.RegisterAlias("audio.griffin_lim_iters", "audio-griffin-lim-iters")
	v.RegisterAlias("model.reduction", "model-reduction")
	v.RegisterAlias("model.max_steps", "model-max-steps")
	v.RegisterAlias("model.seed", "model-seed")
	v.RegisterAlias("model.prenet_dropout_always", "model-prenet-dropout-always")
	v.RegisterAlias("synth.inversion", "synth-inversion")
	v.RegisterAlias("synth.vocoder_model_path", "synth-vocoder-model-path")
	v.RegisterAlias("synth.ort_library_path", "synth-ort-library-path")
	v.RegisterAlias("synth.ort_library_path", "ort-lib")
	v.RegisterAlias("synth.conv_workers", "synth-conv-workers")
}
