package template

// Mock draws one value from a named mock generator, ok reporting whether the
// generator exists. Exposed to the script surface so scripts share the
// placeholder generators.
func Mock(name string, args ...string) (any, bool) {
	return callMock(name, args)
}

// Pipe applies one named pipe to a value, ok reporting whether the pipe
// exists.
func Pipe(name, value string, args ...string) (any, bool) {
	return callPipe(name, value, args)
}
