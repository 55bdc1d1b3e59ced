// Package utils provides loose type conversions for values read from
// untyped sources such as object metadata.
package utils
