// Command scimserver wires the core packages into a runnable SCIM
// service: a schema.Registry preloaded with User and Group, a
// memstore.Store per resource type, a dispatch.Dispatcher, and an
// httpx.Server. It exists to demonstrate the wiring, not as a production
// deployment - grounded on the teacher's main.go (flag-parsed address,
// signal-driven shutdown) and net/server_init.go's NewSparrowServer
// wiring, generalized from the teacher's single baked-in server type to
// this module's pluggable dispatch.Dispatcher/provider.ResourceHandler.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/juju/loggo"

	"github.com/sparrowscim/core/dispatch"
	"github.com/sparrowscim/core/httpx"
	"github.com/sparrowscim/core/memstore"
	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/schema"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.cmd.scimserver")
}

var (
	address = flag.String("a", "0.0.0.0:9000", "address to listen on")
	dataDir = flag.String("data", "/tmp/scimserver", "directory holding the bbolt database file")
)

const (
	userSchemaURN  = "urn:ietf:params:scim:schemas:core:2.0:User"
	groupSchemaURN = "urn:ietf:params:scim:schemas:core:2.0:Group"
)

func main() {
	flag.Parse()
	logger.ConfigureLoggers("<root>=info")

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Errorf("could not create data directory %s: %v", *dataDir, err)
		os.Exit(1)
	}

	reg, err := schema.NewRegistry()
	if err != nil {
		log.Errorf("could not build schema registry: %v", err)
		os.Exit(1)
	}
	userRT, err := reg.RegisterResourceType([]byte(`{"name":"User","endpoint":"/Users","schema":"` + userSchemaURN + `"}`))
	if err != nil {
		log.Errorf("could not register User resource type: %v", err)
		os.Exit(1)
	}
	groupRT, err := reg.RegisterResourceType([]byte(`{"name":"Group","endpoint":"/Groups","schema":"` + groupSchemaURN + `"}`))
	if err != nil {
		log.Errorf("could not register Group resource type: %v", err)
		os.Exit(1)
	}

	dbPath := *dataDir + "/scim.db"
	userStore, err := memstore.Open(dbPath, userRT)
	if err != nil {
		log.Errorf("could not open store at %s: %v", dbPath, err)
		os.Exit(1)
	}
	defer userStore.Close()
	groupStore, err := memstore.OpenWithDB(userStore.DB(), groupRT)
	if err != nil {
		log.Errorf("could not open Group store: %v", err)
		os.Exit(1)
	}

	cfg := provider.NewConfigAccessor(provider.DefaultConfig())
	d := dispatch.NewDispatcher(reg, cfg)
	d.RegisterHandler(userRT.Name, userStore)
	d.RegisterHandler(groupRT.Name, groupStore)

	server := httpx.NewServer(d, reg, cfg)

	go func() {
		log.Infof("listening on %s", *address)
		if err := http.ListenAndServe(*address, server); err != nil && err != http.ErrServerClosed {
			log.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	log.Debugf("waiting for signals...")
	<-sigs
	log.Infof("shutting down...")
}
