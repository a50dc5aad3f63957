// Package config loads gridstore configuration.
//
// LoadConfig reads a YAML file (config.yml, searched under cmd/<service>/,
// config/ and the working directory), then a .env file, then the process
// environment, and unmarshals the result with Viper. Environment variables
// map onto nested keys by splitting on underscores, so GRIDFS_BUCKET_NAME
// sets gridfs.bucket_name.
//
//	var cfg serveConfig
//	if err := config.LoadConfig("gridstore", &cfg); err != nil {
//	    return err
//	}
package config
