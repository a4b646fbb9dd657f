package llm

// Options contains model inference parameters. Nil fields leave the backend
// default in place.
type Options struct {
	// Sampling parameters
	Temperature *float64 `json:"temperature,omitempty" toml:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" toml:"top_p"`
	TopK        *int     `json:"top_k,omitempty" toml:"top_k"`
	Seed        *int     `json:"seed,omitempty" toml:"seed"`

	// Max tokens to generate
	MaxTokens *int `json:"max_tokens,omitempty" toml:"max_tokens"`

	Stop []string `json:"stop,omitempty" toml:"stop"`
}

// MaxTokensOr returns the configured token cap, or def when unset.
func (o *Options) MaxTokensOr(def int) int {
	if o == nil || o.MaxTokens == nil {
		return def
	}

	return *o.MaxTokens
}

// WithDefaults returns a copy of o where every unset field takes the value
// from def. Either may be nil.
func (o *Options) WithDefaults(def *Options) *Options {
	if def == nil {
		return o
	}

	out := *def
	if o == nil {
		return &out
	}

	if o.Temperature != nil {
		out.Temperature = o.Temperature
	}
	if o.TopP != nil {
		out.TopP = o.TopP
	}
	if o.TopK != nil {
		out.TopK = o.TopK
	}
	if o.Seed != nil {
		out.Seed = o.Seed
	}
	if o.MaxTokens != nil {
		out.MaxTokens = o.MaxTokens
	}
	if o.Stop != nil {
		out.Stop = o.Stop
	}

	return &out
}

// IsZero reports whether no field is set.
func (o *Options) IsZero() bool {
	return o == nil || (o.Temperature == nil && o.TopP == nil && o.TopK == nil &&
		o.Seed == nil && o.MaxTokens == nil && o.Stop == nil)
}
