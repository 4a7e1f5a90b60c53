package ir

// EngineVersion is the lemma reasoner version.
const EngineVersion = "0.1.0"
