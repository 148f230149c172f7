package templating

// TemplateConfig holds all configuration options for the script manager.
type TemplateConfig struct {
	// ScriptExtension is the file suffix that marks a file under the script
	// directory as a SmartScript document.
	ScriptExtension string `json:"script_extension" yaml:"script_extension"`

	// Locale is the BCP 47 language tag decfmt formats numbers for.
	Locale string `json:"locale" yaml:"locale"`

	// MaxLoopIterations sets a hard upper limit on the loop iterations a
	// single render may run. Zero disables the limit.
	MaxLoopIterations int `json:"max_loop_iterations" yaml:"max_loop_iterations"`

	// PreviewCacheSize is the number of parsed ad-hoc scripts kept by
	// ExecuteString.
	PreviewCacheSize int `json:"preview_cache_size" yaml:"preview_cache_size"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		ScriptExtension:   ".smscr",
		Locale:            "en",
		MaxLoopIterations: 1_000_000,
		PreviewCacheSize:  64,
	}
}
