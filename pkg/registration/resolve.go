package registration

// Resolve selects exactly one registration from an account's registrations.
//
// With a service supplied, the registration bound to that service is
// returned, or ErrRegistrationNotFound if none matches. Without a service,
// a single registration resolves to itself and anything more fails with
// ErrAmbiguousAccount: the caller has to disambiguate, we never pick an
// arbitrary result.
func Resolve(regs []Registration, service string) (Registration, error) {
	if len(regs) == 0 {
		return Registration{}, ErrRegistrationNotFound
	}
	if service != "" {
		for _, reg := range regs {
			if reg.Service == service {
				return reg, nil
			}
		}
		return Registration{}, ErrRegistrationNotFound
	}
	if len(regs) > 1 {
		return Registration{}, ErrAmbiguousAccount
	}
	return regs[0], nil
}
