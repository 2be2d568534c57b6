package cli

// Export internal functions for testing.

// RunConvert exports runConvert for testing.
var RunConvert = runConvert

// RunBatch exports runBatch for testing.
var RunBatch = runBatch

// ClampParallel exports clampParallel for testing.
var ClampParallel = clampParallel

// DeriveOutputPath exports deriveOutputPath for testing.
var DeriveOutputPath = deriveOutputPath

// CheckOutputFormat exports checkOutputFormat for testing.
var CheckOutputFormat = checkOutputFormat

// MaskKey exports maskKey for testing.
var MaskKey = maskKey
