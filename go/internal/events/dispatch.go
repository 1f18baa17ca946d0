package events

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/store"
)

// Dispatcher decodes an envelope and hands matching changes to cb. Feeds
// narrow by table and week on the wire; event and the remaining filter
// columns are checked here.
func Dispatcher(table store.Table, filter store.Filter, event store.Event, cb func(store.Change)) func([]byte) {
	return func(data []byte) {
		var env ChangeEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("table", string(table)).Msg("dropping undecodable change")
			return
		}
		if env.Table != table || !event.Accepts(env.Event) {
			return
		}
		change, err := env.Change()
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed change")
			return
		}
		if !filter.Matches(change.Row()) {
			return
		}
		cb(change)
	}
}
