// Package serialization stores named float64 arrays in the SafeTensors
// layout:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, {name: {dtype, shape, data_offsets}, "__metadata__": {...}}]
//	[tensor data: little-endian float64, tensors in name order]
//
// Only the F64 dtype is written or accepted. The writer records the SHA-256
// of the data section under the "sha256" metadata key and the reader checks
// it when present.
//
// Example usage:
//
//	err := serialization.SaveFile("params.safetensors", tensors, map[string]string{"epochs": "200"})
//	tensors, meta, err := serialization.LoadFile("params.safetensors")
package serialization
