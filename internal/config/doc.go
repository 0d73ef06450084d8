// Package config defines the settings used by the updater commands and
// provides helpers to load, validate and save them in YAML format.
//
// Every field can be overridden with a FLATPAK_UPDATER_* environment variable;
// inside a sandbox the app ID defaults to FLATPAK_ID.
package config
