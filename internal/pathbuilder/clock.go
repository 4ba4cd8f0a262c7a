package pathbuilder

import "time"

// nowFn is indirected so tests can pin {year} to a fixed value.
var nowFn = time.Now
