// Package config loads lemma's runtime configuration.
//
// Values are layered, lowest priority first:
//
//  1. Defaults from Default
//  2. A YAML file passed to Load
//  3. Environment variables (LEMMA_DB, LEMMA_INFERRED_CONTEXT, LEMMA_LOG_LEVEL)
//
// The merged result is checked with validator struct tags before it is
// returned, so a *Config handed out by Load is always usable.
package config
