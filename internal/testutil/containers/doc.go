// Package containers starts the external services logwatch talks to
// (MySQL for alert history, Mosquitto for MQTT, ntfy for notifications) as
// testcontainers for integration tests.
//
// Containers are usually shared by a package through TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(context.Background(), nil)
//	    if err != nil {
//	        panic(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Everything except this file is behind the "integration" build tag:
//
//	go test -tags=integration ./...
package containers
