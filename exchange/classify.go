package exchange

// classify implements the event classifier: given the initial
// event, decide the exchange type and whether centralized affinity
// distribution is required.
func classify(evt InitialEvent, aff Affinity, snap *DiscoSnapshot) (ExchangeType, bool, error) {
	switch evt.Kind {
	case EventNodeJoin:
		if evt.LocalNodeJoin && aff != nil {
			if err := aff.OnLocalJoin(); err != nil {
				return ExchangeAll, false, err
			}
		}
		return ExchangeAll, false, nil

	case EventNodeLeave, EventNodeFailed:
		centralized := false
		if aff != nil {
			c, err := aff.OnServerLeft(evt.NodeID, snap)
			if err != nil {
				return ExchangeAll, false, err
			}
			centralized = c
		}
		return ExchangeAll, centralized, nil

	case EventClientJoin, EventClientLeave:
		if evt.LocalNodeJoin {
			return ExchangeClient, false, nil
		}
		return ExchangeNone, false, nil

	case EventActivate, EventDeactivate, EventCacheBatch, EventSnapshot, EventAffinityChange:
		// Custom messages are ALL on servers, CLIENT on clients; the
		// caller (worker.go) knows whether the local node is a server and
		// turns this ALL into CLIENT when it is not.
		return ExchangeAll, false, nil

	default:
		return ExchangeNone, false, nil
	}
}
