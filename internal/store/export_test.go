package store

// SetIDGenerators swaps the id sources so collisions can be forced.
func SetIDGenerators(s *Store, publicID, joinCode func() (string, error)) {
	s.newPublicID = publicID
	s.newJoinCode = joinCode
}
