package commands

// RegisterBuiltins registers the built-in commands in the given builder.
func RegisterBuiltins(b *Builder, fsCfg FSConfig, httpCfg HTTPConfig) error {
	all := make([]Command, 0, 8)

	all = append(all, &logCommand{})
	all = append(all, FileCommands(fsCfg)...)
	all = append(all, NewRestAPICommand(httpCfg))

	for _, c := range all {
		if err := b.Register(c); err != nil {
			return err
		}
	}
	return b.Alias("Http", restAPIName)
}

// DefaultRegistry builds a registry holding only the built-in commands.
func DefaultRegistry(fsCfg FSConfig, httpCfg HTTPConfig) (*Registry, error) {
	b := NewBuilder()
	if err := RegisterBuiltins(b, fsCfg, httpCfg); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
