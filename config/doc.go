// Package config loads objmodel settings with viper.
//
// Values resolve in increasing precedence from built-in defaults, a YAML
// file (objmodel.yaml in the working directory, or an explicit path),
// OBJMODEL_* environment variables with dots replaced by underscores
// (OBJMODEL_ALLOCATOR_KIND), and command-line flags bound with BindFlag.
//
// DefaultYAML holds a commented file with every key at its default.
package config
