// Package gobayeux provides both a low-level protocol client and a
// higher-level client that improves the ergonomics of talking to a server
// implementing the Bayeux Protocol.
//
// The best way to create a high-level client is with `NewClient`. Provided a
// server address for the server you're using, you can create a client like so
//
//	serverAddress := "https://localhost:8080/cometd"
//	client, err := gobayeux.NewClient(serverAddress)
//
// You can also register custom HTTP transports with your client
//
//	transport := &http.Transport{
//		DialContext: (&net.Dialer{
//			Timeout:   3 * time.Second,
//			KeepAlive: 10 * time.Second,
//		}).DialContext,
//	}
//	client, err := gobayeux.NewClient(serverAddress, gobayeux.WithHTTPTransport(transport))
//
// The client handshakes, keeps a /meta/connect outstanding and handshakes
// again on its own when the server forgets the session
//
//	if err := client.HandshakeAndWait(10 * time.Second); err != nil {
//		return err
//	}
//
// Messages are delivered through channels. Subscribing sends a
// /meta/subscribe and the subscription survives lost sessions
//
//	id, err := client.GetChannel("/chat/room").Subscribe(func(m gobayeux.Message) {
//		fmt.Println(string(m.Data))
//	})
//
// Listeners do not send anything to the server, which makes them the way to
// observe the meta channels
//
//	client.GetChannel(gobayeux.MetaConnect).AddListener(func(m gobayeux.Message) {
//		fmt.Println("connected:", m.Successful)
//	})
//
// Several operations can be sent in one request with Batch
//
//	client.Batch(func() {
//		client.GetChannel("/chat/room").Publish(map[string]string{"text": "hello"})
//		client.GetChannel("/chat/members").Publish(map[string]string{"user": "me"})
//	})
//
// You can also register extensions that you'd like to use with the server
// by implementing the MessageExtender interface and then passing it to the
// client
//
//	type Example struct {}
//	func (e *Example) Registered(name string, client *gobayeux.BayeuxClient) {}
//	func (e *Example) Unregistered() {}
//	func (e *Example) Outgoing(m *gobayeux.Message) {
//	   switch m.Channel {
//	   case gobayeux.MetaHandshake:
//	   	ext := m.GetExt(true)
//	   	ext["example"] = true
//	   }
//	}
//	func (e *Example) Incoming(m *gobayeux.Message) {}
//
//	e := &Example{}
//	client.UseExtension(e)
package gobayeux
