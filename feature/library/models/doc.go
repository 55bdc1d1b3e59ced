// Package models defines the persistent photo model of the library.
package models
